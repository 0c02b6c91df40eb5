package learning

import (
	"strings"

	"golang.org/x/text/cases"
)

// UnknownTopic is used for questions without a topic.
const UnknownTopic = "Unknown"

// TopicName normalises a display name, substituting UnknownTopic for blanks.
func TopicName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return UnknownTopic
	}
	return s
}

// TopicKey returns the case-folded grouping key for a topic name, so
// "Photosynthesis" and "photosynthesis " land in the same bucket.
func TopicKey(s string) string {
	return cases.Fold().String(TopicName(s))
}
