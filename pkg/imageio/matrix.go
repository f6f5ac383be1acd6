package imageio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"
	"gonum.org/v1/gonum/mat"
)

// matrixMagic starts every zstd matrix dump
var matrixMagic = [4]byte{'P', 'C', 'A', 'M'}

// WriteMatrix stores m as a zstd-compressed little-endian dump:
// magic, rows and cols as uint32, then the values in row-major order
func WriteMatrix(w io.Writer, m mat.Matrix) error {
	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
	)
	if err != nil {
		return err
	}

	rows, cols := m.Dims()
	buf := make([]byte, 8)
	if _, err := enc.Write(matrixMagic[:]); err != nil {
		enc.Close()
		return err
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(rows))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(cols))
	if _, err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(m.At(i, j)))
			if _, err := enc.Write(buf); err != nil {
				enc.Close()
				return err
			}
		}
	}
	return enc.Close()
}

// ReadMatrix decodes a dump written by WriteMatrix
func ReadMatrix(r io.Reader) (*mat.Dense, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(dec, header); err != nil {
		return nil, fmt.Errorf("failed to read matrix header: %w", err)
	}
	if [4]byte(header[0:4]) != matrixMagic {
		return nil, errors.New("not a matrix dump")
	}
	rows := int(binary.LittleEndian.Uint32(header[4:8]))
	cols := int(binary.LittleEndian.Uint32(header[8:12]))
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("matrix dump has empty shape %dx%d", rows, cols)
	}

	data := make([]float64, rows*cols)
	buf := make([]byte, 8)
	for i := range data {
		if _, err := io.ReadFull(dec, buf); err != nil {
			return nil, fmt.Errorf("matrix dump truncated at value %d: %w", i, err)
		}
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf))
	}
	return mat.NewDense(rows, cols, data), nil
}

// SaveMatrix writes a matrix dump to path
func SaveMatrix(path string, m mat.Matrix) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create matrix file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := WriteMatrix(writer, m); err != nil {
		return err
	}
	return writer.Flush()
}

// LoadMatrix reads a matrix dump from path
func LoadMatrix(path string) (*mat.Dense, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadMatrix(bufio.NewReader(file))
}
