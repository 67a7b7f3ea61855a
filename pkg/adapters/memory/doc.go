// Package memory provides a headless rendering engine and an in-memory
// annotation store. It backs the CLI replay mode and the test suites.
package memory
