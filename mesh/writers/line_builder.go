package writers

import (
	"strconv"
	"strings"
)

// lineBuilder assembles one space separated output line from typed fields
type lineBuilder struct {
	sb strings.Builder
}

func (lb *lineBuilder) sep() {
	if lb.sb.Len() > 0 {
		lb.sb.WriteByte(' ')
	}
}

func (lb *lineBuilder) Int(v int) *lineBuilder {
	lb.sep()
	lb.sb.WriteString(strconv.Itoa(v))
	return lb
}

func (lb *lineBuilder) Float(v float64) *lineBuilder {
	lb.sep()
	lb.sb.WriteString(FormatFloat(v))
	return lb
}

func (lb *lineBuilder) String() string {
	return lb.sb.String()
}
