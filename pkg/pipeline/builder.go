package pipeline

// MakeElement создает элемент через фабрику фреймворка.
// Отсутствующая фабрика превращается в *MissingElementError.
func MakeElement(f Factory, factory, name string) (Element, error) {
	el, ok := f.Make(factory, name)
	if !ok || el == nil {
		return nil, &MissingElementError{Factory: factory}
	}
	return el, nil
}

// StaticPad возвращает статический пэд элемента или *NoSuchPadError
func StaticPad(el Element, name string) (Pad, error) {
	pad, ok := el.StaticPad(name)
	if !ok || pad == nil {
		return nil, &NoSuchPadError{Pad: name, Element: el.Name()}
	}
	return pad, nil
}

// RequestPad запрашивает пэд у элемента или возвращает *NoSuchPadError
func RequestPad(el Element, name string) (Pad, error) {
	pad, ok := el.RequestPad(name)
	if !ok || pad == nil {
		return nil, &NoSuchPadError{Pad: name, Element: el.Name()}
	}
	return pad, nil
}

// LinkPads соединяет src и sink пэды, оборачивая отказ фреймворка
func LinkPads(src, sink Pad) error {
	if err := src.Link(sink); err != nil {
		return NewLinkError(src.Name(), sink.Name(), err)
	}
	return nil
}

// LinkMany последовательно соединяет элементы цепочки
func LinkMany(elements ...Element) error {
	for i := 0; i+1 < len(elements); i++ {
		if err := elements[i].Link(elements[i+1]); err != nil {
			return NewLinkError(elements[i].Name(), elements[i+1].Name(), err)
		}
	}
	return nil
}

// Property пара имя/значение для SetProperties
type Property struct {
	Name  string
	Value interface{}
}

// SetProperties устанавливает свойства по порядку, останавливаясь на первой ошибке
func SetProperties(el Element, props ...Property) error {
	for _, p := range props {
		if err := el.SetProperty(p.Name, p.Value); err != nil {
			return NewPropertyError(el.Name(), p.Name, err)
		}
	}
	return nil
}
