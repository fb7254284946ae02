/*
Package session implements the Session Controller: it binds at most one
emulator instance to a presentation surface and moves it between the
Idle, Starting and Running phases.

A Controller is created per page region with New, which creates the
surface and shows its loading overlay. Run resolves a bundle, starts an
instance through the EngineFactory, attaches video, audio, keyboard and
gesture controls through the Toolkit, and hides the overlay. Stop shows
the overlay and terminates the current instance, waiting for it first if
it is still starting. Run and Stop are serialized per controller, so a
new Run always terminates the previous instance before the next one is
attached.
*/
package session
