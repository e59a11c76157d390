package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func (n *Constant) String() string    { return render(n) }
func (n *QueryRoot) String() string   { return render(n) }
func (n *Parameter) String() string   { return n.Name }
func (n *Lambda) String() string      { return render(n) }
func (n *Member) String() string      { return render(n) }
func (n *Call) String() string        { return render(n) }
func (n *Binary) String() string      { return render(n) }
func (n *Unary) String() string       { return render(n) }
func (n *Composite) String() string   { return render(n) }
func (n *Conditional) String() string { return render(n) }

func render(n Node) string {
	var sb strings.Builder
	writeNode(&sb, n)
	return sb.String()
}

func writeNode(sb *strings.Builder, n Node) {
	switch n := n.(type) {
	case nil:
		sb.WriteString("<nil>")
	case *Constant:
		writeConstant(sb, n)
	case *QueryRoot:
		sb.WriteString("Query<")
		sb.WriteString(n.ElementType)
		sb.WriteString(">")
	case *Parameter:
		sb.WriteString(n.Name)
	case *Lambda:
		writeLambda(sb, n)
	case *Member:
		writeNode(sb, n.Target)
		sb.WriteByte('.')
		sb.WriteString(n.Name)
	case *Call:
		writeCall(sb, n)
	case *Binary:
		sb.WriteByte('(')
		writeNode(sb, n.Left)
		sb.WriteByte(' ')
		sb.WriteString(n.Op.Symbol())
		sb.WriteByte(' ')
		writeNode(sb, n.Right)
		sb.WriteByte(')')
	case *Unary:
		writeUnary(sb, n)
	case *Composite:
		writeComposite(sb, n)
	case *Conditional:
		sb.WriteByte('(')
		writeNode(sb, n.Test)
		sb.WriteString(" ? ")
		writeNode(sb, n.IfTrue)
		sb.WriteString(" : ")
		writeNode(sb, n.IfFalse)
		sb.WriteByte(')')
	default:
		fmt.Fprintf(sb, "<%T>", n)
	}
}

func writeConstant(sb *strings.Builder, c *Constant) {
	if c.Value == nil {
		sb.WriteString("null")
		return
	}
	if c.Type != "" {
		sb.WriteString(c.Type)
		sb.WriteByte('(')
		sb.WriteString(FormatValue(c.Value))
		sb.WriteByte(')')
		return
	}
	sb.WriteString(FormatValue(c.Value))
}

// FormatValue renders a constant value the way the printer does.
func FormatValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case decimal.Decimal:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "null"
		}
		return FormatValue(rv.Elem().Interface())
	}
	if rv.Kind() == reflect.Struct || rv.Kind() == reflect.Map {
		return fmt.Sprintf("%+v", v)
	}
	return fmt.Sprint(v)
}

func writeLambda(sb *strings.Builder, l *Lambda) {
	if len(l.Params) == 1 {
		sb.WriteString(l.Params[0].Name)
	} else {
		sb.WriteByte('(')
		for i, p := range l.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.Name)
		}
		sb.WriteByte(')')
	}
	sb.WriteString(" => ")
	writeNode(sb, l.Body)
}

func writeCall(sb *strings.Builder, c *Call) {
	args := c.Args
	switch {
	case c.Object != nil:
		writeNode(sb, c.Object)
		sb.WriteByte('.')
	case c.Op.IsQueryOperator() && len(args) > 0:
		writeNode(sb, args[0])
		sb.WriteByte('.')
		args = args[1:]
	}
	sb.WriteString(c.Name)
	if c.TypeArg != "" {
		sb.WriteByte('<')
		sb.WriteString(c.TypeArg)
		sb.WriteByte('>')
	}
	sb.WriteByte('(')
	for i, arg := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeNode(sb, arg)
	}
	sb.WriteByte(')')
}

func writeUnary(sb *strings.Builder, u *Unary) {
	switch u.Op {
	case Convert:
		sb.WriteString("Convert(")
		writeNode(sb, u.Operand)
		sb.WriteString(", ")
		sb.WriteString(u.Type)
		sb.WriteByte(')')
	case TypeAs:
		sb.WriteByte('(')
		writeNode(sb, u.Operand)
		sb.WriteString(" as ")
		sb.WriteString(u.Type)
		sb.WriteByte(')')
	case Not:
		sb.WriteByte('!')
		writeNode(sb, u.Operand)
	case Negate:
		sb.WriteByte('-')
		writeNode(sb, u.Operand)
	default:
		sb.WriteString(u.Op.String())
		sb.WriteByte('(')
		writeNode(sb, u.Operand)
		sb.WriteByte(')')
	}
}

func writeComposite(sb *strings.Builder, c *Composite) {
	named := len(c.Names) == len(c.Elements) && len(c.Names) > 0
	if named {
		sb.WriteByte('{')
	} else {
		sb.WriteByte('(')
	}
	for i, el := range c.Elements {
		if i > 0 {
			sb.WriteString(", ")
		}
		if named {
			sb.WriteString(c.Names[i])
			sb.WriteString(": ")
		}
		writeNode(sb, el)
	}
	if named {
		sb.WriteByte('}')
	} else {
		sb.WriteByte(')')
	}
}
