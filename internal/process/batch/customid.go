package batch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

const (
	customIDPrefix    = "msg-"
	customIDSeparator = "-chunk-"
)

// FormatCustomID builds the correlation id of one job-file line.
func FormatCustomID(messageID string, chunkIndex int) string {
	return customIDPrefix + messageID + customIDSeparator + strconv.Itoa(chunkIndex)
}

// ParseCustomID reverses FormatCustomID. The message id is returned verbatim as a
// string so large numeric ids keep every digit.
func ParseCustomID(customID string) (messageID string, chunkIndex int, err error) {
	rest, ok := strings.CutPrefix(customID, customIDPrefix)
	if !ok {
		return "", 0, fmt.Errorf("%w: %q has no %q prefix", errors.ErrMalformedCustomID, customID, customIDPrefix)
	}

	sep := strings.LastIndex(rest, customIDSeparator)
	if sep <= 0 {
		return "", 0, fmt.Errorf("%w: %q has no chunk index", errors.ErrMalformedCustomID, customID)
	}

	messageID = rest[:sep]
	indexText := rest[sep+len(customIDSeparator):]

	chunkIndex, convErr := strconv.Atoi(indexText)
	if convErr != nil || chunkIndex < 0 || strconv.Itoa(chunkIndex) != indexText {
		return "", 0, fmt.Errorf("%w: %q has an invalid chunk index", errors.ErrMalformedCustomID, customID)
	}

	return messageID, chunkIndex, nil
}
