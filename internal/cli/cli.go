package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/vitaminmoo/blexfer/internal/advert"
	"github.com/vitaminmoo/blexfer/internal/ble"
	"github.com/vitaminmoo/blexfer/internal/bleuuid"
	"github.com/vitaminmoo/blexfer/internal/config"
	"github.com/vitaminmoo/blexfer/internal/protocol"
	"github.com/vitaminmoo/blexfer/internal/transfer"
	"github.com/vitaminmoo/blexfer/internal/tui"
	"github.com/vitaminmoo/blexfer/internal/util"
)

// CLI is the root command structure for blexfer.
type CLI struct {
	Verbose bool `short:"v" env:"BLEXFER_VERBOSE" help:"Enable verbose debug output"`

	Decode DecodeCmd `cmd:"" help:"Decode raw advertisement payloads given as hex"`
	Scan   ScanCmd   `cmd:"" help:"Scan for advertisements and decode them"`
	UUID   UUIDCmd   `cmd:"" name:"uuid" help:"Show the wire forms of Bluetooth UUIDs"`
	Frame  FrameCmd  `cmd:"" help:"Show how a file would be split into packets"`
	Send   SendCmd   `cmd:"" help:"Send a file to a characteristic packet by packet"`
}

// Vars supplies transfer defaults to the flag definitions.
func Vars() kong.Vars {
	d := config.DefaultTransfer
	return kong.Vars{
		"packet_size": strconv.Itoa(d.PacketSize),
		"delay":       d.InterPacketDelay.String(),
		"timeout":     d.PerPacketTimeout.String(),
		"max_tries":   strconv.Itoa(d.MaxTryCount),
		"default_mtu": strconv.Itoa(protocol.DefaultMTU),
	}
}

func (c *CLI) AfterApply() error {
	config.SetVerbose(c.Verbose)
	return nil
}

// --- Decode Command ---

type DecodeCmd struct {
	Payloads []string `arg:"" name:"hex" help:"Advertisement bytes as hex, e.g. 020106030302A0"`
	Dump     bool     `help:"Also print a hex dump of each payload"`
}

func (c *DecodeCmd) Run(globals *CLI) error {
	for i, s := range c.Payloads {
		raw, err := util.ParseHex(s)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Println()
		}
		printAdvertisement(raw, c.Dump)
	}
	return nil
}

func printAdvertisement(raw []byte, dump bool) {
	fmt.Printf("Payload: %d bytes\n", len(raw))
	if dump {
		util.HexDump(os.Stdout, raw)
	}

	records, err := advert.Records(raw)
	for _, r := range records {
		fmt.Printf("  [0x%02X] %-28s %s\n", r.Type, advert.ADTypeName(r.Type), util.FormatBytes(r.Data))
	}
	if err != nil {
		fmt.Printf("  malformed: %v\n", err)
	}

	rec := advert.ParseScanRecord(raw)
	if rec.Empty() {
		fmt.Println("No fields decoded")
		return
	}
	printScanRecord(rec, "")
}

func printScanRecord(rec advert.ScanRecord, indent string) {
	if rec.DeviceName != "" {
		fmt.Printf("%sName:        %s\n", indent, rec.DeviceName)
	}
	if rec.AdvertiseFlags != advert.FlagsUnknown {
		fmt.Printf("%sFlags:       0x%02X\n", indent, rec.AdvertiseFlags)
	}
	if rec.TxPowerLevel != advert.TxPowerUnknown {
		fmt.Printf("%sTx power:    %d dBm\n", indent, rec.TxPowerLevel)
	}
	for _, u := range rec.ServiceUUIDs {
		fmt.Printf("%sService:     %s\n", indent, formatUUID(u))
	}
	for _, u := range sortedUUIDs(rec.ServiceData) {
		fmt.Printf("%sServiceData: %s = %s\n", indent, formatUUID(u), util.FormatBytes(rec.ServiceData[u]))
	}
	if company, data, ok := rec.ManufacturerSpecific(); ok {
		fmt.Printf("%sVendor:      0x%04X = %s\n", indent, company, util.FormatBytes(data))
	}
}

func sortedUUIDs(m map[uuid.UUID][]byte) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for u := range m {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func formatUUID(u uuid.UUID) string {
	if short, ok := bleuuid.Short(u); ok {
		if bleuuid.Is16Bit(u) {
			return fmt.Sprintf("%04X (%s)", short, strings.ToUpper(u.String()))
		}
		return fmt.Sprintf("%08X (%s)", short, strings.ToUpper(u.String()))
	}
	return strings.ToUpper(u.String())
}

// --- Scan Command ---

type ScanCmd struct {
	Timeout time.Duration `default:"10s" help:"How long to scan"`
	Name    string        `help:"Only show devices whose name contains this (case-insensitive)"`
	Dump    bool          `help:"Hex dump raw advertisement payloads"`
}

func (c *ScanCmd) Run(globals *CLI) error {
	fmt.Printf("Scanning for %s...\n", c.Timeout)

	seen := make(map[string]bool)
	err := ble.Scan(c.Timeout, func(adv ble.Advertisement) bool {
		if c.Name != "" && !strings.Contains(strings.ToLower(adv.Name), strings.ToLower(c.Name)) {
			return true
		}
		if seen[adv.Address] && !config.Verbose {
			return true
		}
		seen[adv.Address] = true

		fmt.Printf("%s  rssi %d  %s\n", adv.Address, adv.RSSI, adv.Name)
		if c.Dump && len(adv.Record.Raw) > 0 {
			util.HexDump(os.Stdout, adv.Record.Raw)
		}
		printScanRecord(adv.Record, "    ")
		return true
	})
	if err != nil {
		return err
	}

	fmt.Printf("%d device(s) found\n", len(seen))
	return nil
}

// --- UUID Command ---

type UUIDCmd struct {
	Values []string `arg:"" name:"uuid" help:"UUIDs as 16/32-bit hex (180D) or full form"`
}

func (c *UUIDCmd) Run(globals *CLI) error {
	for _, s := range c.Values {
		u, err := bleuuid.FromString(s)
		if err != nil {
			return err
		}
		wire := bleuuid.Bytes(u)
		fmt.Printf("%s  wire(%d): % X\n", formatUUID(u), len(wire), wire)
	}
	return nil
}

// --- Frame Command ---

type FrameCmd struct {
	File       string `arg:"" type:"existingfile" help:"Payload file"`
	PacketSize int    `help:"Bytes per packet (overrides --mtu)"`
	MTU        int    `name:"mtu" default:"${default_mtu}" help:"ATT MTU to derive the packet size from"`
	Dump       bool   `help:"Hex dump every packet"`
}

func (c *FrameCmd) Run(globals *CLI) error {
	payload, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	size := c.PacketSize
	if size == 0 {
		size = protocol.PacketSizeForMTU(c.MTU)
	}
	packets, err := protocol.Frame(payload, size)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s in %d packets of %d bytes\n", c.File, humanize.Bytes(uint64(len(payload))), len(packets), size)
	for _, p := range packets {
		fmt.Printf("  %4d/%d  offset %6d  %3d bytes\n", p.Index+1, p.Total, p.Index*size, len(p.Data))
		if c.Dump {
			util.HexDump(os.Stdout, p.Data)
		}
	}
	return nil
}

// --- Send Command ---

type SendCmd struct {
	File string `arg:"" type:"existingfile" help:"Payload file"`

	Address    string `env:"BLEXFER_ADDRESS" help:"Peripheral address or advertised name"`
	Service    string `env:"BLEXFER_SERVICE" help:"Service UUID"`
	WriteChar  string `env:"BLEXFER_WRITE_CHAR" help:"Characteristic UUID to write packets to"`
	NotifyChar string `env:"BLEXFER_NOTIFY_CHAR" help:"Characteristic UUID that notifies acks"`

	PacketSize int           `help:"Bytes per packet (default: negotiated MTU - 3)"`
	Delay      time.Duration `default:"${delay}" help:"Delay between packets"`
	Timeout    time.Duration `default:"${timeout}" help:"Per-packet ack timeout"`
	Tries      int           `default:"${max_tries}" help:"Retries per packet after the first attempt"`
	Verify     string        `default:"none" enum:"none,echo,exact" help:"Ack verification: none, echo or exact"`
	Ack        string        `help:"Expected ack notification as hex (with --verify=exact)"`
	ScanFor    time.Duration `name:"scan-timeout" default:"10s" help:"How long to look for the peripheral"`

	TUI       bool `name:"tui" help:"Show an interactive progress view"`
	Simulate  bool `help:"Send to an in-memory loopback peripheral"`
	DropEvery int  `help:"With --simulate, drop every Nth write"`
}

func (c *SendCmd) Run(globals *CLI) error {
	payload, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	ack, expected, err := c.ackPolicy()
	if err != nil {
		return err
	}

	var link transfer.GattLink
	if c.Simulate {
		link = ble.NewLoopback(ble.LoopbackConfig{
			DropEvery: c.DropEvery,
			Echo:      c.Verify == "echo",
			Reply:     expected,
		})
	} else {
		dev, err := c.connect(ack.Mode == transfer.AckNotification)
		if err != nil {
			return err
		}
		defer dev.Disconnect()
		link = dev
	}

	opts := transfer.Options{
		PacketSize:       c.PacketSize,
		InterPacketDelay: c.Delay,
		PerPacketTimeout: c.Timeout,
		MaxTryCount:      c.Tries,
		Ack:              ack,
	}
	if opts.PacketSize == 0 {
		opts.PacketSize = protocol.PacketSizeForMTU(link.MTU())
	}

	sender := transfer.NewSender(link)
	start := time.Now()
	if c.TUI {
		err = sendWithTUI(sender, c.File, payload, opts)
	} else {
		err = sendPlain(sender, payload, opts)
	}
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	fmt.Printf("Sent %s in %s (%s/s)\n",
		humanize.Bytes(uint64(len(payload))),
		elapsed.Truncate(time.Millisecond),
		humanize.Bytes(uint64(float64(len(payload))/elapsed.Seconds())))
	return nil
}

func (c *SendCmd) ackPolicy() (transfer.AckPolicy, []byte, error) {
	switch c.Verify {
	case "echo":
		return transfer.NotificationVerified(transfer.EchoVerifier), nil, nil
	case "exact":
		if c.Ack == "" {
			return transfer.AckPolicy{}, nil, fmt.Errorf("--verify=exact needs --ack")
		}
		want, err := util.ParseHex(c.Ack)
		if err != nil {
			return transfer.AckPolicy{}, nil, err
		}
		return transfer.NotificationVerified(transfer.ExactVerifier(want)), want, nil
	default:
		return transfer.LocalCompletionOnly(), nil, nil
	}
}

func (c *SendCmd) connect(notify bool) (*ble.DeviceLink, error) {
	if c.Address == "" || c.Service == "" || c.WriteChar == "" {
		return nil, fmt.Errorf("--address, --service and --write-char are required unless --simulate is set")
	}
	if notify && c.NotifyChar == "" {
		return nil, fmt.Errorf("--verify=%s needs --notify-char", c.Verify)
	}

	target := ble.Target{Address: c.Address, ScanTimeout: c.ScanFor}
	var err error
	if target.Service, err = bleuuid.FromString(c.Service); err != nil {
		return nil, fmt.Errorf("invalid service: %w", err)
	}
	if target.WriteChar, err = bleuuid.FromString(c.WriteChar); err != nil {
		return nil, fmt.Errorf("invalid write characteristic: %w", err)
	}
	if notify {
		if target.NotifyChar, err = bleuuid.FromString(c.NotifyChar); err != nil {
			return nil, fmt.Errorf("invalid notify characteristic: %w", err)
		}
	}
	return ble.Connect(target)
}

func sendPlain(sender *transfer.Sender, payload []byte, opts transfer.Options) error {
	cb := transfer.Callbacks{
		OnSendStarted: func(total int) {
			config.Infof("Sending %s in %d packets of %d bytes", humanize.Bytes(uint64(len(payload))), total, opts.PacketSize)
		},
		OnProgress: func(index, total int, data []byte) {
			config.Debugf("Packet %d/%d acknowledged", index+1, total)
		},
		OnPacketFailedAndRetry: func(index, total, tryCount int, data []byte) {
			config.Warnf("Packet %d/%d: write failed, retry %d", index+1, total, tryCount)
		},
		OnTimeoutAndRetry: func(tryCount, index, total int, data []byte) {
			config.Warnf("Packet %d/%d: timeout, retry %d", index+1, total, tryCount)
		},
		OnWrongNotifyAndRetry: func(tryCount, index, total int, data []byte) {
			config.Warnf("Packet %d/%d: unexpected ack, retry %d", index+1, total, tryCount)
		},
	}

	sess, err := sender.Send(payload, opts, cb)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return sess.Wait(ctx)
}

func sendWithTUI(sender *transfer.Sender, title string, payload []byte, opts transfer.Options) error {
	events := make(chan transfer.Event, 64)
	sess, err := sender.Send(payload, opts, transfer.EventCallbacks(events))
	if err != nil {
		return err
	}
	go func() {
		<-sess.Done()
		close(events)
	}()

	tuiErr := tui.Run(title, len(payload), events, sess.Cancel)

	// unblock a callback still sending after the program quit
	for range events {
	}
	if err := sess.Err(); err != nil {
		return err
	}
	return tuiErr
}
