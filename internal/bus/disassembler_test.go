package bus

import (
	"strings"
	"testing"

	"nesforge/internal/cartridge"
)

// TestDisassembleCurrentReflectsResetVector validates that the bus's debug
// surface exposes a nestest-log-style line for the instruction at PC,
// alongside the register and PPU state it was captured with.
func TestDisassembleCurrentReflectsResetVector(t *testing.T) {
	romBuilder := cartridge.NewTestROMBuilder().
		WithPRGSize(1).
		WithCHRSize(1).
		WithResetVector(0x8000).
		WithData(0x0000, []uint8{
			0xA9, 0x42, // LDA #$42
			0x4C, 0x00, 0x80, // JMP $8000 (infinite loop)
		}).
		WithDescription("Disassembler integration test ROM")

	cart, err := romBuilder.BuildCartridge()
	if err != nil {
		t.Fatalf("Failed to create test cartridge: %v", err)
	}

	b := New()
	b.LoadCartridge(cart)
	b.Reset()

	line := b.DisassembleCurrent()

	if !strings.Contains(line, "8000") {
		t.Errorf("expected disassembly to reference PC 8000, got %q", line)
	}
	if !strings.Contains(line, "LDA") {
		t.Errorf("expected mnemonic LDA at reset vector, got %q", line)
	}
	if !strings.Contains(line, "A:00") {
		t.Errorf("expected accumulator snapshot A:00 before execution, got %q", line)
	}
	if !strings.Contains(line, "PPU:") || !strings.Contains(line, "CYC:") {
		t.Errorf("expected PPU and cycle snapshot fields, got %q", line)
	}

	b.Step()

	after := b.DisassembleCurrent()
	if strings.Contains(after, "LDA #$42") {
		t.Errorf("expected PC to have advanced past the LDA after stepping, got %q", after)
	}
}
