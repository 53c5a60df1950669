/*
Package preproc lets a document manifest itself. It finds regions of a text
file bracketed by the block markers, runs the text inside each region as
script code and splices whatever the script returns back into the document
in place of the region. Every local file that the document imports is then
processed in the same way.

A script statement may be spread over several blocks. When a block is not a
complete statement by itself (for instance it opens an 'if' but does not
close it) the text between it and the next block is handed to the script as
a string value and the script decides what, if anything, replaces it:

	"""%if debug then%"""
	log("starting")
	"""%end%"""

The markers are scaled by a depth: at depth n the open marker is three
double quotes followed by n '%' characters and the close marker is n '%'
characters followed by three double quotes. The Preprocessor runs one pass
per depth, from the deepest down to 1, so a document (or a script) can emit
markers for a shallower pass which are only expanded once that pass runs.
*/
package preproc
