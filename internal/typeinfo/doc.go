// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo contains code relating to Go types and their processing in
exql. As much as possible, reflection code is limited to this package. It
describes which fields and methods of a type may be read by template
expressions, and contains the logic for scanning query results into types
passed by the user.
*/
package typeinfo
