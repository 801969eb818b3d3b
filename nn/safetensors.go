package nn

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/x448/float16"
)

const metadataKey = "__metadata__"

// TensorInfo describes one tensor of a safetensors header.
type TensorInfo struct {
	DType   string `json:"dtype"`
	Shape   []int  `json:"shape"`
	Offsets [2]int `json:"data_offsets"`
}

// bytesPerElement returns the element size of a supported dtype, or 0.
func bytesPerElement(dtype string) int {
	switch dtype {
	case "F64":
		return 8
	case "F32":
		return 4
	case "F16":
		return 2
	default:
		return 0
	}
}

// SerializeParameters encodes 1-D parameter vectors in safetensors format:
// [header size (8 bytes LE)] [header JSON] [tensor data].
// Tensors are laid out in name order so the output is deterministic.
func SerializeParameters(params map[string][]float64, metadata map[string]string, dtype string) ([]byte, error) {
	size := bytesPerElement(dtype)
	if size == 0 {
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(params)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	offset := 0
	for _, name := range names {
		n := len(params[name]) * size
		header[name] = TensorInfo{DType: dtype, Shape: []int{len(params[name])}, Offsets: [2]int{offset, offset + n}}
		offset += n
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}

	out := make([]byte, 8+len(headerJSON)+offset)
	binary.LittleEndian.PutUint64(out[0:8], uint64(len(headerJSON)))
	copy(out[8:], headerJSON)

	data := out[8+len(headerJSON):]
	for _, name := range names {
		for _, v := range params[name] {
			switch dtype {
			case "F64":
				binary.LittleEndian.PutUint64(data, math.Float64bits(v))
			case "F32":
				binary.LittleEndian.PutUint32(data, math.Float32bits(float32(v)))
			case "F16":
				binary.LittleEndian.PutUint16(data, float16.Fromfloat32(float32(v)).Bits())
			}
			data = data[size:]
		}
	}
	return out, nil
}

// DeserializeParameters decodes 1-D tensors from safetensors bytes.
func DeserializeParameters(raw []byte) (map[string][]float64, map[string]string, error) {
	if len(raw) < 8 {
		return nil, nil, fmt.Errorf("safetensors: file too short (%d bytes)", len(raw))
	}
	headerSize := binary.LittleEndian.Uint64(raw[0:8])
	if headerSize > uint64(len(raw)-8) {
		return nil, nil, fmt.Errorf("safetensors: header size %d exceeds file size %d", headerSize, len(raw))
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(raw[8:8+headerSize], &header); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header: %w", err)
	}
	data := raw[8+headerSize:]

	var metadata map[string]string
	params := make(map[string][]float64, len(header))
	for name, value := range header {
		if name == metadataKey {
			if err := json.Unmarshal(value, &metadata); err != nil {
				return nil, nil, fmt.Errorf("failed to parse metadata: %w", err)
			}
			continue
		}

		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		size := bytesPerElement(info.DType)
		if size == 0 {
			return nil, nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, info.DType)
		}
		for _, d := range info.Shape {
			if d < 0 {
				return nil, nil, fmt.Errorf("tensor %s: negative dimension in shape %v", name, info.Shape)
			}
		}
		n := shapeSize(info.Shape)
		start, end := info.Offsets[0], info.Offsets[1]
		if start < 0 || start > end || end > len(data) || end-start != n*size {
			return nil, nil, fmt.Errorf("tensor %s: offsets [%d, %d] invalid for %d %s elements", name, start, end, n, info.DType)
		}

		values := make([]float64, n)
		buf := data[start:end]
		for i := range values {
			switch info.DType {
			case "F64":
				values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
			case "F32":
				values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
			case "F16":
				values[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(buf[i*2:])).Float32())
			}
		}
		params[name] = values
	}
	return params, metadata, nil
}

// SaveSafetensors writes the layer parameters with dtype F64, F32 or F16.
func (g *GroupNorm[T]) SaveSafetensors(path, dtype string) error {
	params := make(map[string][]float64)
	for name, t := range g.Parameters() {
		values := make([]float64, len(t.Data))
		for i, v := range t.Data {
			values[i] = float64(v)
		}
		params[name] = values
	}
	metadata := map[string]string{
		"rs":      g.Rs.String(),
		"epsilon": strconv.FormatFloat(g.Epsilon, 'g', -1, 64),
		"affine":  strconv.FormatBool(g.Affine),
	}

	data, err := SerializeParameters(params, metadata, dtype)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadSafetensors replaces the layer parameters with those stored at path.
// The stored representation list and vector lengths must match the layer.
func (g *GroupNorm[T]) LoadSafetensors(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	params, metadata, err := DeserializeParameters(raw)
	if err != nil {
		return err
	}
	if rs, ok := metadata["rs"]; ok && rs != g.Rs.String() {
		return fmt.Errorf("%w: checkpoint Rs %s, layer Rs %s", ErrInvalidRs, rs, g.Rs)
	}

	own := g.Parameters()
	if len(params) != len(own) {
		return fmt.Errorf("%w: checkpoint has %d tensors, layer has %d", ErrParamCount, len(params), len(own))
	}
	for name, t := range own {
		values, ok := params[name]
		if !ok || len(values) != len(t.Data) {
			return fmt.Errorf("%w: tensor %s has %d values, want %d", ErrParamCount, name, len(values), len(t.Data))
		}
	}
	for name, t := range own {
		for i, v := range params[name] {
			t.Data[i] = T(v)
		}
	}
	return nil
}
