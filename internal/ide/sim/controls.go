package sim

// Controls for tests and the interactive simulator. They stand in for the
// front panel and for hardware faults.

// Packets returns copies of every command packet received, exactly as
// written to the Data register.
func (c *Changer) Packets() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.packets))
	for i, p := range c.packets {
		out[i] = append([]byte(nil), p...)
	}
	return out
}

// LastPacket returns the most recent command packet, or nil.
func (c *Changer) LastPacket() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.packets) == 0 {
		return nil
	}
	return append([]byte(nil), c.packets[len(c.packets)-1]...)
}

// ResetCount returns how many hardware resets the drive has seen.
func (c *Changer) ResetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetCount
}

// SpeedLimit returns the read speed last set with SET CD SPEED.
func (c *Changer) SpeedLimit() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speedLimit
}

// SetStuckBusy makes the drive keep BSY set in every status read.
func (c *Changer) SetStuckBusy(stuck bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stuckBSY = stuck
}

// FailNext makes the next bus transaction fail with err, or ErrInjected if
// err is nil.
func (c *Changer) FailNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	c.failNext = err
}

// OpenTray opens the tray as if the front panel button was pressed.
func (c *Changer) OpenTray() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openTray()
}

// CloseTray closes the tray as if it was pushed in.
func (c *Changer) CloseTray() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeTray()
}

// Insert puts d into slot, nil to empty it.
func (c *Changer) Insert(slot int, d *Disc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[slot] = d
}

// DoorOpen reports whether the tray is open.
func (c *Changer) DoorOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doorOpen
}

// CurrentSlot returns the slot under the pickup.
func (c *Changer) CurrentSlot() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settle()
	return c.current
}

// Playing reports whether audio is playing or scanning.
func (c *Changer) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance()
	return c.mode == modePlaying || c.mode == modeScanning
}
