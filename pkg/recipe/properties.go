package recipe

import (
	"gopkg.in/yaml.v3"

	"github.com/cuemby/burrow/pkg/errdefs"
)

// Property is one product property entry.
type Property struct {
	Key   string
	Value string
}

// Properties is an order-preserving set of product properties. The plain
// yaml.v3 map decoding would lose the descriptor order, so decoding walks
// the mapping node directly.
type Properties []Property

// Get returns the value for key and whether it is present.
func (p Properties) Get(key string) (string, bool) {
	for _, prop := range p {
		if prop.Key == key {
			return prop.Value, true
		}
	}
	return "", false
}

// Keys returns the property keys in descriptor order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for _, prop := range p {
		keys = append(keys, prop.Key)
	}
	return keys
}

func (p *Properties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errdefs.Validationf("product properties must be a mapping of scalar values")
	}
	props := make(Properties, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode || valueNode.Kind != yaml.ScalarNode {
			return errdefs.Validationf("product property %q must be a scalar value", keyNode.Value)
		}
		for _, prop := range props {
			if prop.Key == keyNode.Value {
				return errdefs.Validationf("product property %q is defined twice", keyNode.Value)
			}
		}
		props = append(props, Property{Key: keyNode.Value, Value: valueNode.Value})
	}
	*p = props
	return nil
}

func (p Properties) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, prop := range p {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: prop.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: prop.Value},
		)
	}
	return node, nil
}
