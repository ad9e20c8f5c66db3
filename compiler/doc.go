/*

Process of instrumentation

IR Text ->
	parse ->
Intermediate Representation (ir) ->
	verify ->
	canonptr ->
	verify ->
Intermediate Representation (ir) ->
	format ->
IR Text

canonptr rewrites address computations in opted-in functions so the
applied byte offset is also encoded into the high bits of the result,
gated per pointer by the enable bit at bit 48. The runtime side that
checks the tag on dereference is a separate project.

*/
package compiler
