package audit

import (
	"context"
	"sync"
	"time"
)

// Dispatcher desacopla la emisión de la persistencia: encola y despacha en
// un goroutine propio para que el hot path de login nunca espere al sink.
type Dispatcher struct {
	sink Sink
	ch   chan Event
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewDispatcher(sink Sink, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink: sink,
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.ch:
			d.sink.Emit(context.Background(), ev)
		case <-d.done:
			// drenar lo pendiente antes de salir
			for {
				select {
				case ev := <-d.ch:
					d.sink.Emit(context.Background(), ev)
				default:
					return
				}
			}
		}
	}
}

// Emit encola el evento. Si el buffer está lleno se descarta: la auditoría
// no puede tumbar el login.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case d.ch <- ev:
	default:
	}
}

// Close detiene el dispatcher drenando los eventos pendientes.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}
