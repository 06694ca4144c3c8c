package devices

import "unicode/utf8"

// emoji code point ranges, covering the common pictographic blocks plus the
// joiners and modifiers used by composed sequences.
var emojiRanges = [][2]rune{
	{0x1F300, 0x1F5FF}, // symbols & pictographs
	{0x1F600, 0x1F64F}, // emoticons
	{0x1F680, 0x1F6FF}, // transport & map
	{0x1F900, 0x1F9FF}, // supplemental symbols
	{0x1FA70, 0x1FAFF}, // extended-A
	{0x2600, 0x27BF},   // misc symbols & dingbats
	{0x2B00, 0x2BFF},   // arrows & stars
	{0xFE0F, 0xFE0F},   // variation selector
	{0x200D, 0x200D},   // zero-width joiner
	{0x1F3FB, 0x1F3FF}, // skin tone modifiers
}

// IsEmoji reports whether s is a single emoji, possibly a joined sequence.
func IsEmoji(s string) bool {
	if s == "" || utf8.RuneCountInString(s) > 8 {
		return false
	}

	for _, r := range s {
		if !emojiRune(r) {
			return false
		}
	}

	return true
}

func emojiRune(r rune) bool {
	for _, rg := range emojiRanges {
		if r >= rg[0] && r <= rg[1] {
			return true
		}
	}

	return false
}
