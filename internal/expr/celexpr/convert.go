package celexpr

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

var (
	timestampType = reflect.TypeOf(&timestamppb.Timestamp{})
	durationType  = reflect.TypeOf(&durationpb.Duration{})
)

var errNonFinite = errors.New("non-finite double")

// toJSON converts a CEL value into nil, bool, int64, uint64, float64,
// string, []any or map[string]any.
func toJSON(v ref.Val) (any, error) {
	switch val := v.(type) {
	case types.Null:
		return nil, nil
	case types.Bool:
		return bool(val), nil
	case types.Int:
		return int64(val), nil
	case types.Uint:
		return uint64(val), nil
	case types.Double:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errNonFinite
		}
		return f, nil
	case types.String:
		return string(val), nil
	case types.Bytes:
		return base64.StdEncoding.EncodeToString(val), nil
	case types.Timestamp:
		return wellKnownString(val, timestampType)
	case types.Duration:
		return wellKnownString(val, durationType)
	case *types.Optional:
		if !val.HasValue() {
			return nil, nil
		}
		return toJSON(val.GetValue())
	case traits.Mapper:
		return mapToJSON(val)
	case traits.Lister:
		return listToJSON(val)
	}
	if types.IsError(v) {
		return nil, fmt.Errorf("%v", v)
	}
	return nil, fmt.Errorf("unsupported CEL type %s", v.Type().TypeName())
}

func listToJSON(l traits.Lister) ([]any, error) {
	out := make([]any, 0)
	for it := l.Iterator(); it.HasNext() == types.True; {
		item, err := toJSON(it.Next())
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func mapToJSON(m traits.Mapper) (map[string]any, error) {
	out := make(map[string]any)
	for it := m.Iterator(); it.HasNext() == types.True; {
		key := it.Next()
		name, ok := key.(types.String)
		if !ok {
			return nil, fmt.Errorf("map key of type %s is not a string", key.Type().TypeName())
		}
		item, err := toJSON(m.Get(key))
		if err != nil {
			return nil, err
		}
		out[string(name)] = item
	}
	return out, nil
}

// wellKnownString renders a timestamp or duration in its protobuf JSON
// form, for example "2024-01-02T03:04:05Z" or "1.500s".
func wellKnownString(v ref.Val, typ reflect.Type) (any, error) {
	native, err := v.ConvertToNative(typ)
	if err != nil {
		return nil, err
	}
	msg, ok := native.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("unexpected native type %T", native)
	}
	data, err := protojson.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s, nil
}
