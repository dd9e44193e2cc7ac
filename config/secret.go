package config

import (
	"github.com/xaionaro-go/secret"
	"gopkg.in/yaml.v3"
)

// Secret is a secret.String read from YAML. It is never written back.
type Secret struct {
	secret.String
}

func (s *Secret) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}
	*s = NewSecret(str)
	return nil
}

func (s Secret) MarshalYAML() (any, error) {
	if s.Get() == "" {
		return "", nil
	}
	return "<HIDDEN>", nil
}

func (s Secret) IsZero() bool {
	return s.Get() == ""
}

func NewSecret(s string) Secret {
	return Secret{String: secret.New(s)}
}
