/*

The macros package holds a library of named text snippets which preprocessor
scripts can splice into the documents they generate. You construct the
Library object and then either look a macro up by name with Find or call the
Substitute method on a string to replace every sub-string bracketed with the
macro start and end values by the macro it names.

If the macro is not already defined and macro directories have been given
they are searched and if a file is found with the same name as the macro
(possibly with a suffix) then the contents of that file are used as the
value. Any newly found macros are cached for further use. Any macro that
cannot be found in the library or in the macro directories is reported as an
error.

Alternatively macro values can be defined directly and no macro directories
are needed.

*/
package macros
