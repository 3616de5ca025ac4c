package protocol

import "encoding/base64"

func encodeBody(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeBody(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
