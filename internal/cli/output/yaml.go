package output

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats data as YAML.
type YAMLFormatter struct{}

// Format formats data as YAML. Pairs become a mapping in their order.
func (f *YAMLFormatter) Format(w io.Writer, data any) error {
	if pairs, ok := data.([]Pair); ok {
		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, p := range pairs {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: p.Key},
				&yaml.Node{Kind: yaml.ScalarNode, Value: p.Value})
		}
		data = node
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}
