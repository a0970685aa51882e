package payload

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
)

// pyMapping is satisfied by the dict types gopickle produces.
type pyMapping interface {
	Len() int
	Keys() []any
	Get(key any) (any, bool)
}

// pySequence is satisfied by the list and tuple types gopickle produces.
type pySequence interface {
	Len() int
	Get(i int) any
}

// DecodeFile reads and decodes the payload at path. Files named .json, and
// files whose first non-blank byte is '{' or '[' (neither is a pickle
// opcode), are decoded as JSON. Anything else is unpickled.
func DecodeFile(fs afero.Fs, path string) (any, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "payload: open %s", path)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if strings.EqualFold(filepath.Ext(path), ".json") || looksLikeJSON(br) {
		v, err := DecodeJSON(br)
		return v, eris.Wrapf(err, "payload: decode %s", path)
	}
	v, err := DecodePickle(br)
	return v, eris.Wrapf(err, "payload: decode %s", path)
}

func looksLikeJSON(br *bufio.Reader) bool {
	for i := 1; i <= 64; i++ {
		head, _ := br.Peek(i)
		if len(head) < i {
			return false
		}
		switch head[i-1] {
		case ' ', '\t', '\r', '\n':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}

// pyClass stands in for any class the unpickler cannot resolve. It can be
// called and instantiated, and its instances accept any BUILD state, so a
// payload embedding a DataFrame or a numpy array still loads.
type pyClass struct {
	name string
}

// Call handles reconstructor functions such as numpy's _reconstruct,
// whose first argument is the class of the object being rebuilt.
func (c *pyClass) Call(args ...any) (any, error) {
	if len(args) > 0 {
		if cls, ok := args[0].(*pyClass); ok {
			return &pyObject{class: cls}, nil
		}
	}
	return &pyObject{class: c}, nil
}

func (c *pyClass) PyNew(args ...any) (any, error) { return &pyObject{class: c}, nil }

// pyObject discards constructor arguments and state.
type pyObject struct {
	class *pyClass
}

func (o *pyObject) PySetState(any) error { return nil }

func findClass(module, name string) (any, error) {
	return &pyClass{name: module + "." + name}, nil
}

// DecodePickle unpickles r and converts the result to payload values.
func DecodePickle(r io.Reader) (any, error) {
	u := pickle.NewUnpickler(r)
	u.FindClass = findClass
	raw, err := u.Load()
	if err != nil {
		return nil, eris.Wrap(err, "payload: unpickle")
	}
	return fromPython(raw), nil
}

func fromPython(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case bool:
		return x
	case int:
		return int64(x)
	case int64:
		return x
	case int32:
		return int64(x)
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case []byte:
		return string(x)
	case *pyObject:
		return &Object{Class: x.class.name}
	case *pyClass:
		return &Object{Class: x.name}
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = fromPython(e)
		}
		return out
	case pyMapping:
		d := NewDict()
		for _, k := range x.Keys() {
			val, _ := x.Get(k)
			d.Set(keyString(k), fromPython(val))
		}
		if t, ok := tableFromDict(d); ok {
			return t
		}
		return d
	case pySequence:
		out := make([]any, x.Len())
		for i := range out {
			out[i] = fromPython(x.Get(i))
		}
		return out
	default:
		return fromReflect(v)
	}
}

// fromReflect handles pointer-to-slice containers: a slice of {Key, Value}
// structs becomes a Dict, any other slice a list.
func fromReflect(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Slice {
		return fmt.Sprint(v)
	}
	s := rv.Elem()

	elem := s.Type().Elem()
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if elem.Kind() == reflect.Struct {
		if _, ok := elem.FieldByName("Key"); !ok {
			return fmt.Sprint(v)
		}
		if _, ok := elem.FieldByName("Value"); !ok {
			return fmt.Sprint(v)
		}
		d := NewDict()
		for i := 0; i < s.Len(); i++ {
			e := reflect.Indirect(s.Index(i))
			if !e.IsValid() {
				continue
			}
			d.Set(keyString(e.FieldByName("Key").Interface()), fromPython(e.FieldByName("Value").Interface()))
		}
		if t, ok := tableFromDict(d); ok {
			return t
		}
		return d
	}

	out := make([]any, s.Len())
	for i := range out {
		out[i] = fromPython(s.Index(i).Interface())
	}
	return out
}

// finite maps NaN and infinities, which JSON cannot carry, to nil.
func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(fromPython(k))
}

// DecodeJSON decodes a JSON document keeping object key order.
func DecodeJSON(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	v, err := decodeJSONValue(dec)
	if err != nil {
		return nil, eris.Wrap(err, "payload: json")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, eris.New("payload: json: trailing data")
	}
	return v, nil
}

// DecodeJSONBytes is DecodeJSON over a byte slice.
func DecodeJSONBytes(data []byte) (any, error) {
	return DecodeJSON(bytes.NewReader(data))
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			d := NewDict()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, eris.Errorf("object key %v is not a string", kt)
				}
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				d.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			if tbl, ok := tableFromDict(d); ok {
				return tbl, nil
			}
			return d, nil
		case '[':
			out := []any{}
			for dec.More() {
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				out = append(out, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return out, nil
		default:
			return nil, eris.Errorf("unexpected delimiter %v", t)
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, eris.Wrapf(err, "number %s", t)
		}
		return f, nil
	default:
		// string, bool, nil
		return t, nil
	}
}
