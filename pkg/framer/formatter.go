// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package framer

import (
	"fmt"
	"strings"
	"time"
)

// FormatMessage renders a frame for log output
func FormatMessage(msg Message, at time.Time) string {
	var s strings.Builder
	s.WriteString(fmt.Sprintf("[%s] %-8s", at.Format("15:04:05.000"), strings.ToUpper(msg.Type)))

	switch msg.Type {
	case TypeValve:
		s.WriteString(fmt.Sprintf(" %s%%", msg.Value))
	case TypeDisplay:
		mode, valve, hasValve, err := SplitSync(msg.Value)
		switch {
		case err != nil:
			s.WriteString(fmt.Sprintf(" %q (bad sync value)", msg.Value))
		case hasValve:
			s.WriteString(fmt.Sprintf(" mode=%s valve=%d%%", mode, valve))
		default:
			s.WriteString(fmt.Sprintf(" mode=%s", mode))
		}
	default:
		if msg.Value != "" {
			s.WriteString(" " + msg.Value)
		}
	}
	s.WriteString("\n")
	return s.String()
}
