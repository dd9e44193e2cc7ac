package types

// DictionaryItem is a libav option passed as-is to the component it
// configures (for example "f" forces the input format).
type DictionaryItem struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type DictionaryItems []DictionaryItem
