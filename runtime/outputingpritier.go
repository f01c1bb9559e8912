package runtime

import (
	"fmt"
	"strconv"
	"strings"
)

// Pretty formats a Value as a single-line string (raise() uses it for a
// non-String message).
func Pretty(v Value) string {
	switch v.Type {
	case NumberType:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case StringType:
		return v.Str
	case BooleanType:
		return strconv.FormatBool(v.Bool)
	case NoneType:
		return "none"
	case ListType:
		parts := make([]string, len(v.List.Elements))
		for i, el := range v.List.Elements {
			parts[i] = quoteIfString(el)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ObjectType:
		parts := make([]string, 0, len(v.Obj.Keys))
		for _, k := range v.Obj.Keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, quoteIfString(v.Obj.Values[k])))
		}
		prefix := v.Obj.TypeName
		return prefix + "{" + strings.Join(parts, ", ") + "}"
	case TypeType:
		return "type " + v.TypeOf.Name
	case FunctionType:
		if v.Fn.Name != "" {
			return "[function " + v.Fn.Name + "]"
		}
		return "[function]"
	case NativeType:
		return "[native " + v.Native.Name + "]"
	case PointerType:
		return "[pointer " + v.Ptr.Handle + "]"
	case ErrorType:
		return fmt.Sprintf("%s: %s", v.Err.Kind, v.Err.Message)
	default:
		return "<unknown>"
	}
}

func quoteIfString(v Value) string {
	if v.Type == StringType {
		return "\"" + v.Str + "\""
	}
	return Pretty(v)
}

// PrettyMultiline formats a Value with indentation, for collections deep
// enough that a single line is unreadable.
func PrettyMultiline(v Value) string {
	return prettyML(v, 0)
}

func prettyML(v Value, indent int) string {
	pad := strings.Repeat("  ", indent)
	switch v.Type {
	case ListType:
		if len(v.List.Elements) == 0 {
			return pad + "[]"
		}
		var b strings.Builder
		b.WriteString(pad + "[\n")
		for i, el := range v.List.Elements {
			b.WriteString(prettyML(el, indent+1))
			if i < len(v.List.Elements)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString(pad + "]")
		return b.String()
	case ObjectType:
		if len(v.Obj.Keys) == 0 {
			return pad + v.Obj.TypeName + "{}"
		}
		var b strings.Builder
		b.WriteString(pad + v.Obj.TypeName + "{\n")
		inner := strings.Repeat("  ", indent+1)
		for i, k := range v.Obj.Keys {
			val := v.Obj.Values[k]
			switch val.Type {
			case ListType, ObjectType:
				b.WriteString(inner + k + ":\n")
				b.WriteString(prettyML(val, indent+2))
			default:
				b.WriteString(inner + k + ": " + quoteIfString(val))
			}
			if i < len(v.Obj.Keys)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString(pad + "}")
		return b.String()
	default:
		return pad + Pretty(v)
	}
}

// Unescape replaces the escape sequences \r\n, \n, \t, \\ and \" with their
// literal characters. The lexer does not call it: it resolves an escape in a
// string literal by dropping the backslash and keeping the next character.
func Unescape(s string) string {
	replacer := strings.NewReplacer(
		"\\r\\n", "\r\n",
		"\\n", "\n",
		"\\t", "\t",
		"\\\\", "\\",
		"\\\"", "\"",
	)
	return replacer.Replace(s)
}
