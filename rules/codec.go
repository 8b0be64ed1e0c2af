package rules

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"sigs.k8s.io/yaml"
)

// Codec turns rules, contexts and action lists into bytes and back. Decode
// failures are *ParseError and encode failures are *SerializeError.
type Codec interface {
	Name() string
	ContentType() string
	DecodeRule(data []byte) (Rule, error)
	DecodeRules(data []byte) ([]Rule, error)
	DecodeContext(data []byte) (Context, error)
	EncodeRule(r Rule) ([]byte, error)
	EncodeRules(rs []Rule) ([]byte, error)
	EncodeContext(c Context) ([]byte, error)
	EncodeActions(actions []Action) ([]byte, error)
}

// JSONCodec is the default Codec.
type JSONCodec struct{}

func (JSONCodec) Name() string        { return "json" }
func (JSONCodec) ContentType() string { return "application/json" }

func (JSONCodec) DecodeRule(data []byte) (Rule, error) {
	var r Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return Rule{}, &ParseError{Target: "rule", Err: err}
	}
	return r, nil
}

func (JSONCodec) DecodeRules(data []byte) ([]Rule, error) {
	var rs []Rule
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, &ParseError{Target: "rules", Err: err}
	}
	if rs == nil {
		return nil, &ParseError{Target: "rules", Err: fmt.Errorf("expected an array of rules")}
	}
	return rs, nil
}

func (JSONCodec) DecodeContext(data []byte) (Context, error) {
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		return Context{}, &ParseError{Target: "context", Err: err}
	}
	return c, nil
}

func (JSONCodec) EncodeRule(r Rule) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, &SerializeError{Target: "rule", Err: err}
	}
	return data, nil
}

func (JSONCodec) EncodeRules(rs []Rule) ([]byte, error) {
	if rs == nil {
		rs = []Rule{}
	}
	data, err := json.Marshal(rs)
	if err != nil {
		return nil, &SerializeError{Target: "rules", Err: err}
	}
	return data, nil
}

func (JSONCodec) EncodeContext(c Context) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, &SerializeError{Target: "context", Err: err}
	}
	return data, nil
}

func (JSONCodec) EncodeActions(actions []Action) ([]byte, error) {
	data, err := json.Marshal(Actions(actions))
	if err != nil {
		return nil, &SerializeError{Target: "actions", Err: err}
	}
	return data, nil
}

// YAMLCodec reads and writes YAML by converting through the JSON form, so
// both encodings accept exactly the same documents.
type YAMLCodec struct{}

func (YAMLCodec) Name() string        { return "yaml" }
func (YAMLCodec) ContentType() string { return "application/yaml" }

func (YAMLCodec) DecodeRule(data []byte) (Rule, error) {
	j, err := yaml.YAMLToJSON(data)
	if err != nil {
		return Rule{}, &ParseError{Target: "rule", Err: err}
	}
	return JSONCodec{}.DecodeRule(j)
}

func (YAMLCodec) DecodeRules(data []byte) ([]Rule, error) {
	j, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, &ParseError{Target: "rules", Err: err}
	}
	return JSONCodec{}.DecodeRules(j)
}

func (YAMLCodec) DecodeContext(data []byte) (Context, error) {
	j, err := yaml.YAMLToJSON(data)
	if err != nil {
		return Context{}, &ParseError{Target: "context", Err: err}
	}
	return JSONCodec{}.DecodeContext(j)
}

func (YAMLCodec) EncodeRule(r Rule) ([]byte, error) {
	return toYAML("rule", func() ([]byte, error) { return JSONCodec{}.EncodeRule(r) })
}

func (YAMLCodec) EncodeRules(rs []Rule) ([]byte, error) {
	return toYAML("rules", func() ([]byte, error) { return JSONCodec{}.EncodeRules(rs) })
}

func (YAMLCodec) EncodeContext(c Context) ([]byte, error) {
	return toYAML("context", func() ([]byte, error) { return JSONCodec{}.EncodeContext(c) })
}

func (YAMLCodec) EncodeActions(actions []Action) ([]byte, error) {
	return toYAML("actions", func() ([]byte, error) { return JSONCodec{}.EncodeActions(actions) })
}

func toYAML(target string, encode func() ([]byte, error)) ([]byte, error) {
	j, err := encode()
	if err != nil {
		return nil, err
	}
	y, err := yaml.JSONToYAML(j)
	if err != nil {
		return nil, &SerializeError{Target: target, Err: err}
	}
	return y, nil
}

// CodecFor returns the codec registered under name ("json", "yaml" or "yml").
func CodecFor(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSONCodec{}, nil
	case "yaml", "yml":
		return YAMLCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q (use json or yaml)", name)
	}
}

// CodecForContentType picks a codec from an HTTP Content-Type or Accept
// value. Anything that is not a YAML media type gets JSON.
func CodecForContentType(contentType string) Codec {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return JSONCodec{}
	}
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return YAMLCodec{}
	default:
		return JSONCodec{}
	}
}

// CodecForPath picks a codec from a file extension.
func CodecForPath(path string) Codec {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return YAMLCodec{}
	}
	return JSONCodec{}
}
