package gstreamer

import (
	"fmt"

	"github.com/go-gst/go-gst/gst"

	"github.com/arzzra/opus_fec/pkg/pipeline"
)

// Session обертка над rtpbin с типизированными сигналами
type Session struct {
	Element
}

func (s *Session) connect(signal string, f interface{}) error {
	if _, err := s.el.Connect(signal, f); err != nil {
		return fmt.Errorf("подключение сигнала %s: %w", signal, err)
	}
	return nil
}

func (s *Session) OnPadAdded(h pipeline.PadHandler) error {
	return s.connect("pad-added", func(_ *gst.Element, pad *gst.Pad) {
		h(&Pad{pad: pad})
	})
}

func (s *Session) OnRequestPTMap(h pipeline.PTMapHandler) error {
	return s.connect("request-pt-map", func(_ *gst.Element, session, pt uint) interface{} {
		caps, ok := h(session, pt)
		if !ok {
			return nil
		}
		return gst.NewCapsFromString(caps)
	})
}

func (s *Session) OnRequestFECEncoder(h pipeline.FECHandler) error {
	return s.connect("request-fec-encoder", fecCallback(h))
}

func (s *Session) OnRequestFECDecoder(h pipeline.FECHandler) error {
	return s.connect("request-fec-decoder", fecCallback(h))
}

func fecCallback(h pipeline.FECHandler) func(*gst.Element, uint) interface{} {
	return func(_ *gst.Element, session uint) interface{} {
		el := h(session)
		if el == nil {
			return nil
		}
		native, err := unwrap(el)
		if err != nil {
			return nil
		}
		return native
	}
}

func (s *Session) OnNewStorage(h pipeline.StorageHandler) error {
	return s.connect("new-storage", func(_ *gst.Element, storage *gst.Element, session uint) {
		h(&Element{el: storage}, session)
	})
}

// InternalStorage вызывает action сигнал get-internal-storage.
// NULL от rtpbin приходит как *gst.Element с пустым GObject.
func (s *Session) InternalStorage(session uint) (interface{}, bool) {
	v, err := s.el.Emit("get-internal-storage", session)
	if err != nil {
		return nil, false
	}
	el, ok := storageElement(v)
	if !ok {
		return nil, false
	}
	return el, true
}

func storageElement(v interface{}) (*gst.Element, bool) {
	el, ok := v.(*gst.Element)
	if !ok || el == nil || el.Object == nil || el.InitiallyUnowned == nil || el.Unsafe() == nil {
		return nil, false
	}
	return el, true
}
