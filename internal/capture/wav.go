package capture

import (
	"encoding/binary"
	"fmt"
	"os"
)

const wavHeaderSize = 44

// wavWriter writes PCM to a WAV file whose header is valid after every Write.
type wavWriter struct {
	f         *os.File
	format    Format
	dataBytes int64
}

func newWAVWriter(f *os.File, format Format) (*wavWriter, error) {
	w := &wavWriter{f: f, format: format}
	if _, err := f.WriteAt(w.header(), 0); err != nil {
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync wav header: %w", err)
	}
	return w, nil
}

// Write appends PCM bytes, patches the size fields and syncs the file.
func (w *wavWriter) Write(p []byte) (int, error) {
	n, err := w.f.WriteAt(p, wavHeaderSize+w.dataBytes)
	w.dataBytes += int64(n)
	if err != nil {
		return n, err
	}
	if err := w.patchSizes(); err != nil {
		return n, err
	}
	return n, w.f.Sync()
}

// Close pads odd-sized data to the RIFF word boundary and closes the file.
func (w *wavWriter) Close() error {
	var padErr error
	if w.dataBytes%2 == 1 {
		_, padErr = w.f.WriteAt([]byte{0}, wavHeaderSize+w.dataBytes)
		if padErr == nil {
			padErr = w.patchSizes()
		}
	}
	closeErr := w.f.Close()
	if padErr != nil {
		return padErr
	}
	return closeErr
}

func (w *wavWriter) patchSizes() error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], w.riffSize())
	if _, err := w.f.WriteAt(buf[:], 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[:], uint32(w.dataBytes))
	_, err := w.f.WriteAt(buf[:], 40)
	return err
}

func (w *wavWriter) riffSize() uint32 {
	size := 36 + w.dataBytes
	if w.dataBytes%2 == 1 {
		size++
	}
	return uint32(size)
}

func (w *wavWriter) header() []byte {
	f := w.format
	blockAlign := f.Channels * f.BitsPerSample / 8
	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], w.riffSize())
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(f.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], uint16(f.BitsPerSample))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(w.dataBytes))
	return h
}
