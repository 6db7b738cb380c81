package model

import (
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/YuminosukeSato/housereg/pkg/errors"
)

// SaveModel はモデルをMessagePack形式でファイルに保存する
//
// モデルは msgpack.CustomEncoder を実装するか、エクスポートされたフィールドを
// 持つ構造体である必要がある。
//
// 使用例:
//
//	rf := ensemble.NewRandomForestRegressor()
//	// ... モデルの学習 ...
//	err := model.SaveModel(rf, "forest.msgpack")
func SaveModel(m interface{}, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return errors.NewIOError("SaveModel", filename, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = errors.NewIOError("SaveModel", filename, cerr)
		}
	}()

	return SaveModelToWriter(m, file)
}

// LoadModel はファイルからモデルを読み込む
//
// 使用例:
//
//	rf := ensemble.NewRandomForestRegressor()
//	err := model.LoadModel(rf, "forest.msgpack")
func LoadModel(m interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.NewIOError("LoadModel", filename, err)
	}
	defer file.Close()

	return LoadModelFromReader(m, file)
}

// SaveModelToWriter はモデルをio.Writerに保存する
func SaveModelToWriter(m interface{}, w io.Writer) error {
	if err := msgpack.NewEncoder(w).Encode(m); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
func LoadModelFromReader(m interface{}, r io.Reader) error {
	if err := msgpack.NewDecoder(r).Decode(m); err != nil {
		return errors.NewParseError("LoadModel", 0, "malformed model payload", err)
	}
	return nil
}
