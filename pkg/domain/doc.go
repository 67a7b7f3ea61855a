/*
Package domain contains the core models of the region annotation engine.

It defines the locally owned annotation list, the opaque records held by the
external rendering engine, and the events emitted as the two are kept in sync.
This package is kept pure and free of I/O, following Hexagonal Architecture
principles.

# Key Entities

  - Annotation: A locally registered region (uid, display name, presentation flags).
  - Label: The ordered {uid, displayName} pair shown to the user.
  - Record: An opaque entry in the external annotation store.
  - Selection: The annotation, if any, currently in edit focus.
  - LifecycleHooks: Callbacks for observing registry, selection and store changes.
*/
package domain
