package parsing

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// textDecoders UTF-8 之后依次尝试的编码，latin-1 总能成功
var textDecoders = []struct {
	name string
	enc  encoding.Encoding
}{
	{"gbk", simplifiedchinese.GBK},
	{"gb18030", simplifiedchinese.GB18030},
	{"latin-1", charmap.ISO8859_1},
}

func parseTXT(path string) (*Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read txt: %w", err)
	}

	text, enc, err := decodeText(raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: txt is empty", ErrNoText)
	}
	return &Result{Text: text, Encoding: enc}, nil
}

// decodeText 识别编码并转为 UTF-8
func decodeText(raw []byte) (string, string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw), "utf-8", nil
	}
	for _, d := range textDecoders {
		out, err := d.enc.NewDecoder().Bytes(raw)
		if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
			continue
		}
		return string(out), d.name, nil
	}
	return "", "", fmt.Errorf("unable to detect text encoding")
}
