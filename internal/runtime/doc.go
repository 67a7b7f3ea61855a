// Package runtime implements the annotation workspace: image lifecycle,
// completion settling, selection state and the add/edit/delete commands.
package runtime
