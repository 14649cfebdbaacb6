// Package chunkproto implements the FETCH/STORE text-prefixed wire
// protocol agents use to request and push chunks over the overlay
// transport.
package chunkproto

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformed = errors.New("chunkproto: malformed request")

// Kind distinguishes a decoded request.
type Kind int

const (
	KindFetch Kind = iota
	KindStore
)

// FetchRequest asks the receiving node for one chunk of a file.
type FetchRequest struct {
	Path  string
	Index uint64
}

// StoreRequest pushes a chunk's bytes to the receiving node.
type StoreRequest struct {
	Path    string
	Index   uint64
	DriveID string
	Hash    string
	Length  int
	Data    []byte
}

// EncodeFetch renders "FETCH <path> <index>".
func EncodeFetch(path string, index uint64) []byte {
	return []byte(fmt.Sprintf("FETCH %s %d", path, index))
}

// EncodeStore renders "STORE <path> <index> <drive_id> <hash> <length>\n<bytes>".
func EncodeStore(path string, index uint64, driveID, hash string, data []byte) []byte {
	header := fmt.Sprintf("STORE %s %d %s %s %d\n", path, index, driveID, hash, len(data))
	buf := make([]byte, 0, len(header)+len(data))
	buf = append(buf, header...)
	buf = append(buf, data...)
	return buf
}

// ackByte / eioByte are the single-byte STORE responses.
const ackByte = 0x06
const eioByte = 0x15

// EncodeAck / EncodeEIO are the single-byte STORE acknowledgements.
func EncodeAck() []byte { return []byte{ackByte} }
func EncodeEIO() []byte { return []byte{eioByte} }

// IsAck reports whether a received datagram is a STORE ack.
func IsAck(data []byte) bool { return len(data) == 1 && data[0] == ackByte }

// IsEIO reports whether a received datagram is a STORE EIO response.
func IsEIO(data []byte) bool { return len(data) == 1 && data[0] == eioByte }

// Decode inspects a raw datagram and decodes it as either a FetchRequest
// or a StoreRequest.
func Decode(data []byte) (Kind, *FetchRequest, *StoreRequest, error) {
	s := string(data)
	switch {
	case strings.HasPrefix(s, "FETCH "):
		fields := strings.Fields(strings.TrimPrefix(s, "FETCH "))
		if len(fields) != 2 {
			return 0, nil, nil, ErrMalformed
		}
		idx, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("%w: bad index: %v", ErrMalformed, err)
		}
		return KindFetch, &FetchRequest{Path: fields[0], Index: idx}, nil, nil

	case strings.HasPrefix(s, "STORE "):
		nl := strings.IndexByte(s, '\n')
		if nl < 0 {
			return 0, nil, nil, ErrMalformed
		}
		header := strings.Fields(strings.TrimPrefix(s[:nl], "STORE "))
		if len(header) != 5 {
			return 0, nil, nil, ErrMalformed
		}
		idx, err := strconv.ParseUint(header[1], 10, 64)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("%w: bad index: %v", ErrMalformed, err)
		}
		length, err := strconv.Atoi(header[4])
		if err != nil {
			return 0, nil, nil, fmt.Errorf("%w: bad length: %v", ErrMalformed, err)
		}
		body := data[nl+1:]
		if len(body) != length {
			return 0, nil, nil, fmt.Errorf("%w: body length %d != declared %d", ErrMalformed, len(body), length)
		}
		return KindStore, nil, &StoreRequest{
			Path:    header[0],
			Index:   idx,
			DriveID: header[2],
			Hash:    header[3],
			Length:  length,
			Data:    body,
		}, nil

	default:
		return 0, nil, nil, ErrMalformed
	}
}
