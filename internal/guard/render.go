package guard

import (
	"strconv"
	"strings"
)

// Placeholder stands for the remaining minutes in a warning template.
const Placeholder = "_"

// DefaultWarningTemplate is the message shown when the host does not set one.
const DefaultWarningTemplate = "It seems like you have been inactive for a while.\n" +
	"Please note that your session will end in _ minutes, unless you do something."

// Render replaces every placeholder in template with minutes, floored at zero.
func Render(template string, minutes int) string {
	return strings.ReplaceAll(template, Placeholder, strconv.Itoa(max(0, minutes)))
}
