/*
Package domain contains the core domain models of the chequeflow workflow engine.

It defines the closed set of screens and operations, the request lifecycle
container (RequestSlice), the navigation history (ScreenStack), the typed
operation payloads and the view descriptors handed to the presentation layer.
This package is kept pure and free of I/O, following Hexagonal Architecture
principles.

# Key Entities

  - Screen: A step of the workflow (start, sheets, inquiry, delivery).
  - Operation: A remote call in the catalog, described by a Descriptor.
  - RequestSlice: The idle/loading/succeeded/failed lifecycle of one operation.
  - ScreenStack: The ordered navigation history; its top is the current screen.
  - Snapshot: A serializable copy of a session for inspection and diffing.
  - ViewDescriptor: What the presentation layer should mount for the top screen.
*/
package domain
