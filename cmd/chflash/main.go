// Command chflash programs CH551/CH552/CH553/CH554/CH558/CH559 parts through
// their factory USB or UART bootloader.
//
// Usage:
//
//	chflash -w -f blink.bin              write, verify and start the app (USB)
//	chflash -v -f blink.bin              verify flash against a file
//	chflash -e                           erase the application flash
//	chflash -d                           detect chip and bootloader version
//	chflash -s                           reset into the application
//	chflash -p /dev/ttyUSB0 -w -f f.bin  same over a serial adapter
//	chflash --log run.log -w -f f.bin    also record a transcript of all traffic
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/hexefx/chflash/pkg/chisp"
	"github.com/hexefx/chflash/pkg/transcript"
	"github.com/hexefx/chflash/pkg/transport"
)

const toolVersion = "2.1"

const sep = "---------------------------------------------------------------------------------"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		doWrite  = flag.Bool("w", false, "write file to flash, verify and start the application")
		doVerify = flag.Bool("v", false, "verify flash against the provided file")
		doDetect = flag.Bool("d", false, "detect chip and bootloader version")
		doErase  = flag.Bool("e", false, "erase the application flash")
		doStart  = flag.Bool("s", false, "reset and start the application")
		file     = flag.String("f", "", "firmware image to write or verify")
		port     = flag.String("p", "", "serial port (default: USB)")
		logPath  = flag.String("log", "", "record a transcript of all bootloader traffic to this file")
		showVer  = flag.Bool("version", false, "show tool version")
	)
	flag.Parse()

	if *showVer {
		fmt.Println("chflash version " + toolVersion)
		fmt.Println("Supported chips: CH551, CH552, CH553, CH554, CH558 and CH559")
		return 0
	}

	selected := 0
	for _, b := range []bool{*doWrite, *doVerify, *doDetect, *doErase, *doStart} {
		if b {
			selected++
		}
	}
	if selected == 0 {
		flag.Usage()
		return 1
	}
	if selected > 1 {
		fmt.Fprintln(os.Stderr, "chflash: -w, -v, -d, -e and -s are mutually exclusive")
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var fw []byte
	if *doWrite || *doVerify {
		if *file == "" {
			fmt.Fprintln(os.Stderr, "chflash: -f <file> is required for this operation")
			return 2
		}
		var err error
		if fw, err = os.ReadFile(*file); err != nil {
			fmt.Fprintln(os.Stderr, "chflash: "+err.Error())
			return 2
		}
		fmt.Printf("Filesize: %d bytes\n", len(fw))
	}

	tr, err := openTransport(*port)
	if err != nil {
		fatal(err)
		if errors.Is(err, transport.ErrAccessDenied) {
			return 2
		}
		return 1
	}
	defer tr.Close()

	opts := []chisp.Option{
		chisp.WithLogger(logger),
		chisp.WithProgress(progressFunc()),
	}
	if *logPath != "" {
		f, err := os.Create(*logPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "chflash: "+err.Error())
			return 2
		}
		defer f.Close()
		fmt.Println("Transaction logger ON: " + *logPath)
		opts = append(opts, chisp.WithTranscript(transcript.New(f)))
	}

	s := chisp.New(tr, opts...)
	if err := runOp(s, fw, *doWrite, *doVerify, *doDetect, *doErase, *doStart); err != nil {
		fatal(err)
		return 1
	}
	return 0
}

func runOp(s *chisp.Session, fw []byte, write, verify, detect, erase, start bool) error {
	if _, err := s.Detect(); err != nil {
		return err
	}
	if start {
		return s.StartApp()
	}
	if err := s.Identify(); err != nil {
		return err
	}
	chip := s.Chip()
	fmt.Printf("Found %s, bootloader version %s\n", chip.Symbol, s.BootloaderVersion())

	switch {
	case detect:
		return nil
	case erase:
		return s.Erase()
	case verify:
		if err := s.Verify(fw); err != nil {
			return err
		}
	case write:
		if err := s.Erase(); err != nil {
			return err
		}
		if err := s.Write(fw); err != nil {
			return err
		}
		if err := s.Verify(fw); err != nil {
			return err
		}
	}
	fmt.Println("Starting application...")
	return s.StartApp()
}

func openTransport(port string) (chisp.Transport, error) {
	if port == "" {
		return transport.OpenUSB()
	}
	tr, err := transport.OpenSerial(port)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Port %s open, starting the bootloader via the DTR line...\n", tr.Name())
	return tr, nil
}

// progressFunc adapts the session's per-packet callback to one progress bar
// per write/verify pass.
func progressFunc() func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetDescription("flash"),
			)
		}
		_ = bar.Set(done)
		if done >= total {
			_ = bar.Finish()
			fmt.Println()
			bar = nil
		}
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, sep)
	fmt.Fprintln(os.Stderr, "Error: "+err.Error())
	switch {
	case errors.Is(err, transport.ErrNoResponse):
		fmt.Fprintln(os.Stderr, "The MCU is not answering on the UART.")
		fmt.Fprintln(os.Stderr, "Cycle the power with the PROG button held down, then retry.")
		fmt.Fprintln(os.Stderr, "UART pins: CH554 RXD1=P1.6 TXD1=P1.7, CH559 RXD=P0.2 TXD=P0.3")
	case errors.Is(err, transport.ErrAccessDenied):
		fmt.Fprintln(os.Stderr, "No access to the USB device; configure udev or run as root.")
		fmt.Fprintln(os.Stderr, "Create /etc/udev/rules.d/99-ch55x.rules with:")
		fmt.Fprintln(os.Stderr, `  SUBSYSTEM=="usb", ATTR{idVendor}=="4348", ATTR{idProduct}=="55e0", MODE="666"`)
		fmt.Fprintln(os.Stderr, "then restart udev and reconnect the device.")
	case errors.Is(err, transport.ErrDeviceNotFound):
		fmt.Fprintln(os.Stderr, "No CH55x bootloader device found; check the cable and driver,")
		fmt.Fprintln(os.Stderr, "and make sure the chip was powered up with the PROG button held.")
	}
	fmt.Fprintln(os.Stderr, sep)
}
