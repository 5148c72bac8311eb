// Grounded on other_examples/2fb19b9c_jangala-dev-devicecode-go's HAL core
// loop (one goroutine, one select over config/control/event/poll
// channels, edge-triggered timers) and the lightd reconciler's
// buffered, coalescing trigger channel.
package eventbus
