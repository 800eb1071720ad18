// Package pipelinetest предоставляет in-memory реализацию интерфейсов
// pkg/pipeline для тестирования без GStreamer.
//
// Основные возможности:
//   - Factory с настраиваемым набором зарегистрированных фабрик
//   - Element с журналом свойств, связей и опубликованных отказов
//   - Session (rtpbin) с ручным запуском сигналов pad-added,
//     request-pt-map, request-fec-encoder/decoder, new-storage
//   - Pipeline с управляемой шиной сообщений
//
// Пример использования:
//
//	factory := pipelinetest.NewFactory()
//	rtpbin := factory.MustMake("rtpbin", "rtpbin").(*pipelinetest.Session)
//	depay := factory.MustMake("rtpopusdepay", "depay")
//
//	pad := pipelinetest.NewPad(nil, "recv_rtp_src_0_1234_96", pipeline.PadSrc)
//	rtpbin.EmitPadAdded(pad)
package pipelinetest
