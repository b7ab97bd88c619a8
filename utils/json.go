package utils

import (
	"bytes"
	"sync"

	"github.com/bytedance/sonic"
)

var bufPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

func Marshal(data interface{}) ([]byte, error) {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		if buf.Cap() < 16*1024 {
			bufPool.Put(buf)
		}
	}()

	enc := sonic.ConfigDefault.NewEncoder(buf)
	if err := enc.Encode(data); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func Unmarshal(data []byte, target interface{}) error {
	return sonic.ConfigDefault.Unmarshal(data, target)
}
