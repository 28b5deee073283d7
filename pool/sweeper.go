// Copyright (c) 2026 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package pool

// Start begins closing idle connections that outlive MaxIdleAge or
// MaxLifetime. Start is idempotent.
func (p *Pool) Start() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.stop != nil {
		return nil
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.sweepLoop(p.stop, p.done)
	return nil
}

func (p *Pool) stopSweeper() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.stop, p.done = nil, nil
}

func (p *Pool) sweepLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		timer := p.clock.Timer(p.cfg.SweepInterval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C():
			p.sweep()
		}
	}
}

// sweep closes expired idle connections. Lent connections are left alone;
// Release checks their lifetime.
func (p *Pool) sweep() {
	p.mu.Lock()
	endpoints := make([]*endpointPool, 0, len(p.endpoints))
	for _, epool := range p.endpoints {
		endpoints = append(endpoints, epool)
	}
	p.mu.Unlock()

	now := p.clock.Now()
	for _, epool := range endpoints {
		epool.mu.Lock()
		kept := epool.idle[:0]
		var expired []*Conn
		for _, c := range epool.idle {
			if c.expired(now, p.cfg) {
				delete(epool.open, c)
				expired = append(expired, c)
				continue
			}
			kept = append(kept, c)
		}
		for i := len(kept); i < len(epool.idle); i++ {
			epool.idle[i] = nil
		}
		epool.idle = kept
		epool.mu.Unlock()

		p.closeAll(expired, "expired")
	}
}
