package avatar

import (
	"math/rand"
	"strings"
)

const channelLetters = "abcdefghijklmnopqrstuvwxyz"

// GenerateChannelName returns a random call channel name of nine lowercase
// letters in three dash-separated groups, e.g. "qzk-mwa-tpe".
func GenerateChannelName() string {
	var b strings.Builder
	b.Grow(11)
	for i := 0; i < 9; i++ {
		if i > 0 && i%3 == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(channelLetters[rand.Intn(len(channelLetters))])
	}
	return b.String()
}
