// Package rtpprobe содержит инструменты проверки RTP потока без медиа-фреймворка:
// UDP слушатель, считающий пакеты по payload type и SSRC с учетом потерь
// и перестановок, и синтетический отправитель пакетов PT 96.
//
// Пример: проверить, что передатчик шлет и Opus, и ULPFEC
//
//	l, _ := rtpprobe.Listen(rtpprobe.ListenConfig{Addr: "127.0.0.1:5000"})
//	probe := rtpprobe.NewProbe(l, nil)
//	go probe.Run(ctx)
//	...
//	probe.Counter().HasPT(96) && probe.Counter().HasPT(100)
package rtpprobe
