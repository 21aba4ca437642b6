/*
Package expr evaluates boolean conditions against documents.

# Syntax

	or      := and ('or' and)*
	and     := unary ('and' unary)*
	unary   := ('not' | '!') unary | compare
	compare := primary (op primary)?
	primary := '(' or ')' | value
	op      := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'contains' | custom
	value   := 'string' | "string" | number | true | false | null | path

Equality compares the formatted values, so 1 == '1' holds. Ordering
compares numbers; values that are not numeric compare as 0. Paths are
dotted document paths and resolve to null when absent. Bare words are
always paths; quote string literals.

# Usage

Compile once, evaluate many times:

	x, err := expr.Compile("status == 'active' and order.total > 100")
	if err != nil {
	    return err
	}
	if x.Eval(doc) {
	    ...
	}

Any type with a Get(path) (any, bool) method can supply values;
*document.Document does, and Map adapts a plain map.

# Custom Operators

	e := expr.New(expr.WithCustomOperator("matches", func(left, right any) bool {
	    ok, _ := regexp.MatchString(fmt.Sprint(right), fmt.Sprint(left))
	    return ok
	}))
	x, err := e.Compile("name matches '^test'")

# Truthiness

A condition without an operator is true unless its value is null,
false, an empty string or zero.
*/
package expr
