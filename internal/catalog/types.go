package catalog

// Document describes one study document: the topics it covers and, per
// topic, the source excerpt questions are generated from.
type Document struct {
	ID     string  `yaml:"id"`
	Title  string  `yaml:"title"`
	Topics []Topic `yaml:"topics"`
	// Source is the full document text, loaded from a sibling .source.md file.
	Source string `yaml:"-"`
}

// Topic is a named section of a document.
type Topic struct {
	Name       string `yaml:"name"`
	Excerpt    string `yaml:"excerpt"`
	Difficulty string `yaml:"difficulty"`
}
