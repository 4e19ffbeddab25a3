package outputs

import (
	"fmt"
	"strconv"

	"github.com/smazurov/castnode/internal/graph"
)

// Properties returns the flat property map persisted for b.
func (b *Branch) Properties() map[string]any {
	props := map[string]any{
		"category": string(b.Category),
		"kind":     string(b.Kind),
		"name":     b.Name,
	}
	switch role := b.Sink.Role.(type) {
	case graph.StreamSink:
		props["ip"] = role.IP
		props["port"] = role.Port
		props["mount"] = role.Mount
		props["password"] = role.Password
	case graph.StoreSink:
		props["location"] = role.Path
	}
	return props
}

// SetProperties updates the sink of b from props. Unknown keys and keys
// that do not apply to the branch kind are ignored.
func (r *Registry) SetProperties(b *Branch, props map[string]any) error {
	switch role := b.Sink.Role.(type) {
	case graph.StreamSink:
		if v, ok := props["ip"]; ok {
			role.IP = fmt.Sprint(v)
		}
		if v, ok := props["port"]; ok {
			port, err := toInt(v)
			if err != nil {
				return graph.NewError(graph.CodeStreamInfo, b.Sink.Name, "port", err)
			}
			role.Port = port
		}
		if v, ok := props["mount"]; ok {
			role.Mount = fmt.Sprint(v)
		}
		if v, ok := props["password"]; ok {
			role.Password = fmt.Sprint(v)
		}
		if role.IP == "" || role.Port <= 0 || role.Mount == "" {
			return graph.NewError(graph.CodeStreamInfo, b.Sink.Name, "ip, port and mount are required", nil)
		}
		if err := setAll(b.Sink, "ip", role.IP, "port", role.Port, "mount", role.Mount, "password", role.Password); err != nil {
			return err
		}
		b.Sink.Role = role
	case graph.StoreSink:
		if v, ok := props["location"]; ok {
			role.Path = fmt.Sprint(v)
		}
		if role.Path == "" {
			return graph.NewError(graph.CodeLocationMissing, b.Sink.Name, "file path is required", nil)
		}
		if err := setAll(b.Sink, "location", role.Path); err != nil {
			return err
		}
		b.Sink.Role = role
	default:
		return graph.NewError(graph.CodeNotStoreStreamSink, b.Sink.Name, "", nil)
	}
	if v, ok := props["name"]; ok {
		b.Name = fmt.Sprint(v)
	}
	return nil
}

func setAll(s *graph.Stage, kv ...any) error {
	for i := 0; i+1 < len(kv); i += 2 {
		name := kv[i].(string)
		if err := s.Element.SetProperty(name, kv[i+1]); err != nil {
			return graph.NewError(graph.CodeEngine, s.Name, "setting "+name, err)
		}
	}
	return nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("unsupported value %T", v)
}
