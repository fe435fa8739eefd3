package discovery

import (
	"bufio"
	"net"
	"strings"

	log "github.com/sirupsen/logrus"
)

// notifyMessage is a parsed SSDP NOTIFY advertisement.
type notifyMessage struct {
	NT       string
	NTS      string
	USN      string
	Location string
}

// listenNotify joins the SSDP multicast group and forwards NOTIFY messages
// until stop is closed.
func listenNotify(stop <-chan struct{}, handle func(notifyMessage)) error {
	addr, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return err
	}

	go func() {
		<-stop
		conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
			}
			log.Printf("ssdp notify read failed: %v", err)
			return err
		}

		msg, ok := parseNotify(string(buf[:n]))
		if !ok {
			continue
		}
		handle(msg)
	}
}

func parseNotify(raw string) (notifyMessage, bool) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	if !scanner.Scan() {
		return notifyMessage{}, false
	}
	if !strings.HasPrefix(strings.ToUpper(scanner.Text()), "NOTIFY") {
		return notifyMessage{}, false
	}

	headers := make(map[string]string)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		headers[strings.ToUpper(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
	}

	msg := notifyMessage{
		NT:       headers["NT"],
		NTS:      strings.ToLower(headers["NTS"]),
		USN:      headers["USN"],
		Location: headers["LOCATION"],
	}
	if msg.USN == "" {
		return notifyMessage{}, false
	}
	return msg, true
}
