// Package ui implements the runtime health dashboard using bubbletea's Elm architecture.
//
// The dashboard stands in for the app's render loop. Each tick is a frame timestamp fed to the health monitor, and
// the view shows:
//  1. Device capabilities and tier
//  2. The monitor's rolling frame rate, drop rate, memory and thermal readings
//  3. The active performance profile and a list of recent profile changes
//
// The [Model] implements bubbletea's standard Init/Update/View pattern, receiving messages via the [Msg] union type.
// Profile changes flow through the controller's subscription channel, so a slow dashboard never blocks the controller.
//
// Keyboard bindings: p pauses the monitor (Stop/Start), s stretches frames past their budget to simulate jank,
// j/k scroll the change list and q quits.
package ui
