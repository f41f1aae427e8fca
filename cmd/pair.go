package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/skip2/go-qrcode"
)

// PairConfig holds configuration for the pair command.
type PairConfig struct {
	Addr string
	QR   bool
}

func runPair(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pair", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &PairConfig{}
	fs.StringVar(&cfg.Addr, "addr", "", "Host address to display (default: Tailscale or LAN IP:7070)")
	fs.BoolVar(&cfg.QR, "qr", true, "Display the connect URL as a QR code")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tandemterm pair [options]\n\nShow the connect URL for viewer devices.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	// Determine a display address reachable from other devices.
	// Priority: Tailscale IP > LAN IP > localhost (with warning).
	displayAddr := cfg.Addr
	if displayAddr == "" {
		if ip := GetTailscaleIP(); ip != "" {
			displayAddr = ip + ":7070"
		} else if ip := GetPreferredOutboundIP(); ip != "" {
			displayAddr = ip + ":7070"
		} else {
			fmt.Fprintf(stderr, "Warning: could not detect network IP, using localhost\n")
			displayAddr = "127.0.0.1:7070"
		}
	}

	// A connect URL is only useful if the host is actually up. Probe the
	// local health endpoint rather than the display address, since the
	// host may listen on all interfaces.
	if !hostReachable("127.0.0.1:7070") && !hostReachable(displayAddr) {
		fmt.Fprintf(stderr, "Warning: no running host detected; start one with 'tandemterm run'\n")
	}

	connectURL := fmt.Sprintf("ws://%s/ws", displayAddr)

	if cfg.QR {
		DisplayConnectQR(stdout, connectURL, displayAddr)
	} else {
		DisplayConnectURL(stdout, connectURL, displayAddr)
	}
	return 0
}

// hostReachable probes the host's health endpoint.
func hostReachable(addr string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/health", addr))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// DisplayConnectURL shows the connect URL to the user.
func DisplayConnectURL(w io.Writer, connectURL, addr string) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         CONNECT A VIEWER")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "  URL:  %s\n", connectURL)
	fmt.Fprintf(w, "  Host: %s\n", addr)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  Enter this URL in the viewer app, or run:")
	fmt.Fprintf(w, "  tandemterm-viewer %s\n", connectURL)
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}

// DisplayConnectQR shows the connect URL as a QR code with a plain-text
// fallback. The QR payload uses a URL scheme for easy mobile parsing:
// tandemterm://connect?url=<ws-url>
func DisplayConnectQR(w io.Writer, connectURL, addr string) {
	payload := fmt.Sprintf("tandemterm://connect?url=%s", url.QueryEscape(connectURL))

	// Medium error correction keeps the code scannable at terminal sizes.
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		fmt.Fprintf(w, "Falling back to text display.\n\n")
		DisplayConnectURL(w, connectURL, addr)
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         SCAN TO CONNECT")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")

	// Half-block characters keep the code compact in a terminal.
	fmt.Fprint(w, qr.ToSmallString(false))

	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintln(w, "  Plain-text fallback:")
	fmt.Fprintf(w, "  URL:  %s\n", connectURL)
	fmt.Fprintf(w, "  Host: %s\n", addr)
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}

// GetPreferredOutboundIP returns the machine's preferred outbound IPv4
// address. It works by dialing a UDP connection to a public IP (no actual
// traffic sent) and checking which local address was selected by the OS
// routing table. Returns empty string if detection fails.
func GetPreferredOutboundIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

// tailscaleNet is the CGNAT range used by Tailscale (100.64.0.0/10).
var tailscaleNet = &net.IPNet{
	IP:   net.IPv4(100, 64, 0, 0),
	Mask: net.CIDRMask(10, 32),
}

// GetTailscaleIP scans network interfaces for a Tailscale IP address.
// Tailscale uses the 100.64.0.0/10 CGNAT range. Returns empty string if no
// Tailscale IP is found.
func GetTailscaleIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP.To4()
			if ip != nil && tailscaleNet.Contains(ip) {
				return ip.String()
			}
		}
	}
	return ""
}
