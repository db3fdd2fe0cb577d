package scene

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Opacity defaults to 1 when a decoded element omits it.

func (e *Element) UnmarshalJSON(data []byte) error {
	type plain Element
	v := plain{Opacity: 1}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = Element(v)
	return nil
}

func (e *Element) UnmarshalYAML(node *yaml.Node) error {
	type plain Element
	v := plain{Opacity: 1}
	if err := node.Decode(&v); err != nil {
		return err
	}
	*e = Element(v)
	return nil
}
