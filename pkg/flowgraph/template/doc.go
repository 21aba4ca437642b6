/*
Package template expands ${path} and $name placeholders in strings.

	msg, err := template.NewExpander(template.WithMissingAction(template.MissingError)).
	    Expand("order ${order.id} for $customer", doc)

Brace placeholders take dotted document paths. Dollar placeholders take
a single name and stop at the first character that cannot be part of one,
so $port does not match inside $portNumber.

Strings are inserted as-is, maps and lists as JSON and other values with
fmt's %v.

# Missing Values

MissingKeep (the default) leaves the placeholder in place, MissingEmpty
removes it and MissingError reports every missing name in an
UndefinedVariableError.

Expander is safe for concurrent use after construction.
*/
package template
