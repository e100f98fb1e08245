package envelope

import "regexp"

const defaultMaxSignatureLines = 10

// Lines opening with any of these pairs delimit a signature or footer block.
var signatureDelimiter = regexp.MustCompile(`^(--|__|==|\*\*|##)`)

// stripSignature drops trailing signature blocks from a message body.
// Scanning from the end, it remembers the last delimiter line seen; a run of
// maxLines non-delimiter lines ends the scan. Everything from the last
// confirmed delimiter to the end is cut. Without a delimiter the lines come
// back unchanged.
func stripSignature(lines []string, maxLines int) []string {
	sigLines := 0
	run := 0

	for n := 0; n < len(lines); n++ {
		if signatureDelimiter.MatchString(lines[len(lines)-1-n]) {
			sigLines = n + 1
			run = 0
		}
		if run >= maxLines {
			break
		}
		run++
	}

	return lines[:len(lines)-sigLines]
}
